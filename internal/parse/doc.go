// Package parse extracts structured values from free-form model output.
//
// Structured first tries a strict decode: code fences and language markers
// are stripped, the outermost JSON object or array is located and decoded,
// and the container type is checked against the expected Shape. Only when the
// strict path fails does the repair path run:
//
//   - lists are split on line breaks and commas, bullet/number/quote markers
//     are removed, boilerplate lines are discarded, and the result is padded
//     or truncated to the shape's cardinality;
//   - objects are rebuilt from "SECTION_NAME:" headers, decoding section
//     bodies that are themselves JSON.
//
// The outcome is an explicit tagged Result so callers can tell a clean decode
// from a heuristic repair. Both paths are deterministic.
package parse
