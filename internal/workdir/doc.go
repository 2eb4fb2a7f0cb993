// Package workdir manages the per-item scratch directories the ingest
// executor creates under paths.work_dir.
//
// Executors remove their own directory when an item finishes; CleanStale
// reclaims directories left behind by crashed or interrupted runs, and
// ListDirectories feeds the disk usage line of the status command.
package workdir
