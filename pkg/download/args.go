package download

import "path/filepath"

const (
	// DefaultFormat prefers mp4 video with m4a audio, falling back to a
	// single mp4 stream.
	DefaultFormat      = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]"
	DefaultMergeFormat = "mp4"

	// OutputTemplate names files after the media title.
	OutputTemplate = "%(title)s.%(ext)s"

	// ProgressTemplate makes every progress report a "<n>% at <speed>" line.
	ProgressTemplate = "[download] %(progress._percent_str)s at %(progress._speed_str)s"
)

// BuildArgs returns the argument vector for one job. The result depends only
// on its inputs; cookieFile is passed with --cookies when non-empty.
func BuildArgs(cfg Config, url, outputDir, cookieFile string) []string {
	format := cfg.Format
	if format == "" {
		format = DefaultFormat
	}
	merge := cfg.MergeFormat
	if merge == "" {
		merge = DefaultMergeFormat
	}

	args := []string{
		url,
		"--format", format,
		"--merge-output-format", merge,
		"-o", filepath.Join(outputDir, OutputTemplate),
		"--no-warnings",
		"--newline",
		"--progress-template", ProgressTemplate,
	}
	if cookieFile != "" {
		args = append(args, "--cookies", cookieFile)
	}
	return args
}
