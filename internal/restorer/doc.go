// Package restorer reconstructs the files of a backup version in a
// destination directory.
//
// A restore runs in three passes:
//
//	create all directories, parents first
//	restore files and symlinks on a pool of workers
//	apply directory metadata, deepest directories first
//
// Files are dispatched in the order of the volume holding their first block,
// so the workers read volumes mostly sequentially and few volumes need to be
// open at the same time. Every file is written to a temporary file next to
// its destination and renamed into place only after its size and content hash
// were checked. A file which fails or is interrupted leaves nothing behind.
//
// Failures are recorded per file and never stop the other files. The run as a
// whole is only stopped when the context is cancelled, when the destination
// runs out of space, or when the backup set is malformed.
package restorer
