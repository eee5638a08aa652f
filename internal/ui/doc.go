// Package ui renders orchestrator notifications in the terminal with lipgloss styles.
//
// [TerminalNotifier] implements the orchestrator's notification sink. Each [models.NotificationKind]
// maps to one message and one [Palette] style:
//   - migration finished : success style
//   - missing capabilities : error style, listing the missing capability names
//   - missing connector : warning style, with a hint on selecting one
package ui
