// Package techniques turns evidence passages into actionable techniques and
// describes each therapy for display.
package techniques
