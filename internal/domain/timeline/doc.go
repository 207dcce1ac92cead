// Package timeline holds the ordered message list of one session.
//
// Messages are only ever appended or patched in place; removal happens by
// resetting the whole timeline.
package timeline
