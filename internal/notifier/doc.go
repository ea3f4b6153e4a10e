// Package notifier sends short Telegram alerts when an account's cycle ends
// in a selected outcome (by default EXPIRED or FAILED).
//
// Alerts are deduplicated per account and outcome for a window, rate limited,
// and sent from a bounded queue. Send errors are logged and dropped; the
// scheduler never waits on the notifier.
package notifier
