package render

import "scenesmith/internal/jobstore"

// Preset maps a job quality to the renderer's flag and output directory name.
type Preset struct {
	Flag string
	Dir  string
}

var presets = map[jobstore.Quality]Preset{
	jobstore.QualityLow:    {Flag: "-ql", Dir: "480p15"},
	jobstore.QualityMedium: {Flag: "-qm", Dir: "720p30"},
	jobstore.QualityHigh:   {Flag: "-qh", Dir: "1080p60"},
	jobstore.QualityUltra:  {Flag: "-qk", Dir: "2160p60"},
}

// PresetFor resolves the renderer preset for a quality, defaulting to medium
// for anything unrecognized.
func PresetFor(quality jobstore.Quality) Preset {
	if preset, ok := presets[quality]; ok {
		return preset
	}
	return presets[jobstore.QualityMedium]
}
