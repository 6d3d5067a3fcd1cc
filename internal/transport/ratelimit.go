package transport

import "golang.org/x/time/rate"

// inboundRate and inboundBurst bound how many control/sensor text frames a
// single glasses or TPA connection may push per second before frames start
// getting dropped (spec.md §5: a misbehaving peer must never be able to
// starve every other session sharing this process). Binary audio frames are
// exempt — dropping audio silently breaks the transcript pipeline in a way
// dropping a redundant button_press does not.
const (
	inboundRate  rate.Limit = 50
	inboundBurst            = 100
)

func newInboundLimiter() *rate.Limiter {
	return rate.NewLimiter(inboundRate, inboundBurst)
}
