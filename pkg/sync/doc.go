/*
The sync package implements sftpsync's one-way mirroring algorithm. It makes
a remote directory reflect a local one, without ever modifying the local side.

A run has four stages:
1) The local tree is walked. Directories matching an exclude pattern are
   pruned, and symlinks are checked for cycles, dangling targets, and targets
   outside the local root.
2) The remaining files are filtered by the include and exclude patterns. The
   files that pass are the candidates.
3) Each candidate is compared with the remote file at the same relative path.
   The file is uploaded unless the remote copy is at least as new and has the
   same size. Failures are counted and don't stop the run.
4) If deletion is enabled, remote files that aren't candidates are removed.
   This happens strictly after all uploads.

The sync algorithm only deals with files. Empty directories aren't synced, and
remote directories are only created as needed to hold uploaded files.

All remote access goes through remote.FS, so the algorithm doesn't depend on
how the remote is reached.
*/
package sync
