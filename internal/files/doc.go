// Package files discovers analyzable weight-diary files on disk. It backs
// the batch CLI's directory mode: given a folder of exports, it returns the
// CSV and Excel files worth feeding to the analysis pipeline.
package files
