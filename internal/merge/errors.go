package merge

import "github.com/kart-vcs/kart/internal/kerr"

func errNoSuchConflict(path string) *kerr.Error {
	return kerr.New(kerr.InvalidArgument, "%s: no pending conflict at this path", path)
}

func errUnknownResolution(kind ResolutionKind) *kerr.Error {
	return kerr.New(kerr.InvalidArgument, "unknown resolution kind %d", int(kind))
}
