// Package sanitizer normalizes user supplied text before validation and
// storage.
//
// Every function is idempotent. Invalid input is not an error here: it is
// normalized as far as possible and left for the validator to reject.
//
// Normalization includes:
//   - Resource ids: lowercase slugs, "Alder Lake House" becomes "alder-lake-house"
//   - Free text: control characters dropped, whitespace collapsed and trimmed
//   - Display names: derived from a slug, "alder-lake-house" becomes "Alder Lake House"
package sanitizer
