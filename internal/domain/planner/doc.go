// Package planner creates folders of prepared sessions, either from a
// project plan written by the completion model or from a built-in template.
package planner
