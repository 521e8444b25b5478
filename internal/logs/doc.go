// Package logs reads back the JSON records the daemon appends to tailor.log.
//
// Tail returns the last lines of the file with bounded memory and the byte
// offset to resume from. Follow polls from an offset until the context ends.
// Entry decodes one record and Filter narrows records to a request, a
// component, or a minimum level so `tailor logs` can trace a single run.
package logs
