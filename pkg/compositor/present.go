package compositor

// rotateCoordinates maps a source (x, y) into physical-surface space for
// the given rotation, mirroring rotate_coordinates in the original
// pixel_functions.c: each 90-degree step swaps axes and negates one of
// them against the destination bounds.
func rotateCoordinates(x, y int, r Rotation, physicalW, physicalH int) (int, int) {
	switch r {
	case Rotate90:
		return physicalW - 1 - y, x
	case Rotate180:
		return physicalW - 1 - x, physicalH - 1 - y
	case Rotate270:
		return y, physicalH - 1 - x
	default:
		return x, y
	}
}

// blit composes src onto dst's pixel buffer, applying rotation and an
// optional horizontal flip as a pure per-pixel coordinate transform, the
// same per-pixel draw loop shape as draw_pixel_rotated /
// draw_filled_rect_rotated in the original compositor. Out-of-bounds
// destination pixels are silently dropped, matching the original's
// bounds-checked draw_pixel_rotated.
func blit(dst, src *Framebuffer, r Rotation, flipHorizontal bool) {
	for sy := 0; sy < src.Height; sy++ {
		for sx := 0; sx < src.Width; sx++ {
			x := sx
			if flipHorizontal {
				x = src.Width - 1 - sx
			}

			dx, dy := rotateCoordinates(x, sy, r, dst.Width, dst.Height)
			if dx < 0 || dx >= dst.Width || dy < 0 || dy >= dst.Height {
				continue
			}

			dst.Pixels[dy*dst.Width+dx] = src.Pixels[sy*src.Width+sx]
		}
	}
}
