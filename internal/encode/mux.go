package encode

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// Mux interleaves the recorded tracks into one container at outPath. Both
// tracks are anchored to session t=0, so no offset correction is needed;
// the container performs the final timestamp interleaving. The video track
// is stream-copied; audio is encoded to AAC at the tier bitrate.
//
// audioPath may be empty, in which case the video track is remuxed alone.
func Mux(ctx context.Context, videoPath, audioPath, outPath string, audioBitrateKbps int) error {
	args := []string{"-hide_banner", "-y", "-i", videoPath}
	if audioPath != "" {
		args = append(args,
			"-i", audioPath,
			"-c:v", "copy",
			"-c:a", "aac",
			"-b:a", fmt.Sprintf("%dk", audioBitrateKbps),
			"-shortest",
		)
	} else {
		args = append(args, "-c", "copy")
	}
	args = append(args, outPath)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("mux output: %w", err)
	}
	return nil
}
