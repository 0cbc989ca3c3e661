package systems

import "github.com/spaghettifunk/rivet/engine/core"

/**
 * @brief FrameToken is the capability that gates phase-restricted mutators.
 *
 * Only RendererSystem.BeginFrame constructs a live token, at the one point
 * in the frame where slot assignment, eviction, retirement processing and
 * upload flushing are safe. The token is passed by value into every such
 * mutator; a zero FrameToken fails the liveness check, so "called from the
 * wrong phase" surfaces immediately instead of corrupting in-flight state.
 */
type FrameToken struct {
	frame           uint64
	completedSerial uint64
	submitSerial    uint64
	live            bool
}

// Frame returns the CPU frame ordinal this token was issued for.
func (t FrameToken) Frame() uint64 {
	return t.frame
}

// CompletedSerial returns the GPU completion serial confirmed at frame start.
func (t FrameToken) CompletedSerial() uint64 {
	return t.completedSerial
}

// SubmitSerial returns the serial the upcoming submission will signal.
// Resources created or retired this frame are stamped with it.
func (t FrameToken) SubmitSerial() uint64 {
	return t.submitSerial
}

func requireFrameToken(token FrameToken, op string) {
	if !token.live {
		core.LogFatal("%s called outside the frame-start safe point", op)
	}
}
