package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
	"github.com/jmerrifield20/riskengine/internal/scan"
)

// ErrStreamEnded is returned when a scan stream closes before its terminal event.
var ErrStreamEnded = errors.New("scan stream ended without a terminal event")

// maxEventSize bounds one server-sent event.
const maxEventSize = 1 << 20

// EventFunc receives each scan event in order. Returning an error stops the
// stream; for StartScan that also cancels the scan server-side.
type EventFunc func(scan.Event) error

// StartScan starts a discovery scan and delivers its events to fn until the
// terminal event, which is also returned.
func (c *Client) StartScan(ctx context.Context, scanType, subnet string, fn EventFunc) (*scan.Event, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/assets/scan", nil, model.StartScanRequest{
		UserID:   c.userID,
		ScanType: scanType,
		Subnet:   subnet,
	})
	if err != nil {
		return nil, err
	}
	return c.stream(req, fn)
}

// FollowScan replays a scan's events from the start and follows it live.
func (c *Client) FollowScan(ctx context.Context, id string, fn EventFunc) (*scan.Event, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/scans/"+url.PathEscape(id)+"/events", nil, nil)
	if err != nil {
		return nil, err
	}
	return c.stream(req, fn)
}

func (c *Client) stream(req *http.Request, fn EventFunc) (*scan.Event, error) {
	req.Header.Set("Accept", "text/event-stream")

	// Streams outlive the request timeout.
	hc := *c.httpClient
	hc.Timeout = 0

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return nil, checkStatus(resp.StatusCode, body, req.URL.Path)
	}

	var terminal *scan.Event
	err = readEvents(resp.Body, func(data []byte) error {
		var ev scan.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("decode scan event: %w", err)
		}
		if fn != nil {
			if err := fn(ev); err != nil {
				return err
			}
		}
		if ev.Terminal() {
			terminal = &ev
			return io.EOF
		}
		return nil
	})
	if terminal != nil {
		return terminal, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, ErrStreamEnded
}

// readEvents parses a text/event-stream body and calls emit with the data
// of each event. Multi-line data fields are joined with newlines; comments
// and other fields are ignored. An io.EOF from emit stops reading cleanly.
func readEvents(r io.Reader, emit func([]byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var data bytes.Buffer
	dispatch := func() error {
		if data.Len() == 0 {
			return nil
		}
		defer data.Reset()
		return emit(bytes.TrimSuffix(data.Bytes(), []byte("\n")))
	}

	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if err := dispatch(); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			data.WriteByte('\n')
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read scan stream: %w", err)
	}
	if err := dispatch(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
