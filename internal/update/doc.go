// Package update keeps the launched application current.
//
// This package handles:
//   - Reading the version recorded inside the installed artifact
//   - Querying the release service for the latest release
//   - Comparing dotted numeric versions
//   - Streaming the release archive to a temp file with progress
//   - Extracting the archive into the install directory, rejecting unsafe entries
//
// The package is isolated from UI concerns. An Orchestrator runs one cycle and
// reports it as Event values on a channel (Start) or as a single Result (Run);
// the UI only renders what it receives.
//
// Example usage:
//
//	resolver := update.NewResolver(update.GitHubLatestURL("", owner, repo))
//	orch := update.NewOrchestrator(layout, resolver, update.WithLogger(logger))
//	for ev := range orch.Start(ctx) {
//	    // render ev
//	}
package update
