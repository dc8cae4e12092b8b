// Package session holds the per-session runtime pieces: the frame
// feed bridging client uploads to the capture loop, and the snapshot
// store that survives stage transitions.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/campusgate/campusgate-backend/internal/verification/domain"
)

// ErrFeedClosed is returned when frames are pushed or pulled after the
// feed has been shut down.
var ErrFeedClosed = errors.New("frame feed closed")

// ErrCameraInactive is returned when a frame arrives while no scan
// holds the camera.
var ErrCameraInactive = errors.New("camera not active")

// FrameFeed receives frames uploaded by the client and hands them to
// the capture loop. It implements both the camera and frame source
// roles: Acquire gates on the client-reported camera grant, Capture
// blocks for the next uploaded frame.
type FrameFeed struct {
	mu     sync.Mutex
	frames chan domain.Frame
	buffer int
	wait   time.Duration
	grant  *bool
	active bool
	closed bool
}

// NewFrameFeed creates a feed with the given upload buffer and the
// maximum time Capture waits for a frame before reporting not-ready.
func NewFrameFeed(buffer int, wait time.Duration) *FrameFeed {
	if buffer < 1 {
		buffer = 1
	}
	return &FrameFeed{
		frames: make(chan domain.Frame, buffer),
		buffer: buffer,
		wait:   wait,
	}
}

// SetCameraGrant records the client's answer to the camera permission
// prompt.
func (f *FrameFeed) SetCameraGrant(granted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grant = &granted
}

// Acquire activates the feed for a scan. It fails when the client
// denied camera access or has not answered yet.
func (f *FrameFeed) Acquire(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrFeedClosed
	}
	if f.grant == nil {
		return &domain.DeviceAccessError{Reason: "camera permission not reported"}
	}
	if !*f.grant {
		return &domain.DeviceAccessError{Reason: "camera permission denied"}
	}
	f.active = true
	return nil
}

// Release deactivates the feed and drops any buffered frames. Safe to
// call repeatedly.
func (f *FrameFeed) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return
	}
	f.active = false
	f.drainLocked()
}

// Push accepts a frame uploaded by the client. When the buffer is full
// the oldest frame is dropped so the scan always sees recent imagery.
func (f *FrameFeed) Push(frame domain.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrFeedClosed
	}
	if !f.active {
		return ErrCameraInactive
	}
	for {
		select {
		case f.frames <- frame:
			return nil
		default:
			select {
			case <-f.frames:
			default:
			}
		}
	}
}

// Capture blocks for the next frame. After the configured wait with no
// upload it returns domain.ErrFrameNotReady so the capture loop can
// retry the same frame slot.
func (f *FrameFeed) Capture(ctx context.Context) (domain.Frame, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return domain.Frame{}, ErrFeedClosed
	}
	if !f.active {
		f.mu.Unlock()
		return domain.Frame{}, ErrCameraInactive
	}
	f.mu.Unlock()

	timer := time.NewTimer(f.wait)
	defer timer.Stop()
	select {
	case frame := <-f.frames:
		return frame, nil
	case <-timer.C:
		return domain.Frame{}, domain.ErrFrameNotReady
	case <-ctx.Done():
		return domain.Frame{}, ctx.Err()
	}
}

// Close shuts the feed down for good.
func (f *FrameFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.active = false
	f.drainLocked()
}

func (f *FrameFeed) drainLocked() {
	for {
		select {
		case <-f.frames:
		default:
			return
		}
	}
}
