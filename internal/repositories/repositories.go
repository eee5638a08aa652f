// package repositories provides SQLite persistence for preferences and telemetry.
package repositories

import "fmt"

// nextSequence returns a subquery yielding the next sequence number for the given table.
//
// Sequence numbers are human-readable ordering values (e.g. event #42).
// They are NOT exposed as identifiers but used internally for sorting and debugging.
// Embedding the subquery in the INSERT keeps allocation and write in one statement.
func nextSequence(table string) string {
	return fmt.Sprintf("(SELECT COALESCE(MAX(sequence), 0) + 1 FROM %s)", table)
}
