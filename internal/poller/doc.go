// Package poller drives periodic device refreshes at an adaptive cadence.
//
// The scheduler runs at one of two intervals: a slow idle cadence, and a
// fast burst cadence entered after a command or an observed state change,
// so transitions get timely confirmation. Burst mode lasts for a
// configured duration and then decays back to idle via a countdown; a
// failed refresh re-enters a near-burst posture so recovery is quick.
//
// Polling is never abandoned: every tick reschedules the next one
// regardless of outcome. Exactly one timer is pending at any time;
// rescheduling always cancels the previous timer first.
package poller
