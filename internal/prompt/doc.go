// Package prompt renders stage prompts from templates containing {name}
// placeholders.
//
// Rendering is a single left-to-right pass: substituted values are copied
// verbatim and never re-scanned, so a value that itself looks like a
// placeholder stays literal. Placeholders without a value are left in place
// unless the caller marked them required, in which case Render reports every
// missing name in one MissingBindingError before any provider is contacted.
package prompt
