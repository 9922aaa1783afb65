// Package download supervises the external media downloader.
//
// Each job runs the configured executable (yt-dlp by default) as its own
// process. A job moves Pending → Running → {Succeeded, Failed, Cancelled}
// and settles exactly once: whichever of process exit and Cancel happens
// first decides the outcome.
//
// When a job carries cookies they are written as a Netscape jar to
// <output dir>/cookies/<job id>.txt and passed with --cookies. The jar is
// removed once the process has exited.
//
// Standard output is read in chunks and reassembled into lines by a
// LineBuffer before progress tokens are matched, so a percentage split
// across two reads is still seen whole. Progress events are handed to the
// caller's callback from a separate goroutine; if the callback falls behind,
// intermediate values are dropped in favour of the newest.
package download
