// Package file keeps tripctx configuration on disk.
//
// ConfigStore reads and writes ~/.tripctx/config.toml as nested tables and
// exposes the values under flat dotted keys such as cache.ttl. PromptStore
// loads prompt fragments from the prompts directory beside it and falls back
// to the embedded defaults for any fragment that is missing.
package file
