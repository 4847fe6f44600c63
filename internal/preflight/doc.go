// Package preflight validates the host environment before an index is
// opened for writing: free disk space, available memory, data
// directory write permission, the open-file limit, and optionally the
// embedding service. A marker file in the data directory remembers a
// passed run so the checks cost nothing on later starts.
package preflight
