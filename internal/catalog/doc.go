// Package catalog holds named pipeline definitions.
//
// Definitions are YAML documents. A built-in set (resume, keywords,
// jd-analysis) is embedded in the binary; an optional pipelines file from
// the configuration adds to it or replaces entries by name. Each definition
// declares its inputs and stages, and Build turns one definition plus caller
// inputs into a pipeline.Request ready for the orchestrator.
package catalog
