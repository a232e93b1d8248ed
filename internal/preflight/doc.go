// Package preflight provides readiness checks for the external tools,
// model endpoints, and filesystem paths the daemon depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and refuses to accept jobs when a
//     required dependency is missing.
//   - The CLI "scenesmith health" command uses individual check functions
//     to display service readiness.
package preflight
