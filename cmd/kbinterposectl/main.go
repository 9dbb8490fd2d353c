// kbinterposectl — operator CLI for the keyfence daemon's control
// surface. Plain os.Args[1]-dispatched subcommands, no flag-parsing
// dependency.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/keyfence/keyfence/internal/identity"
)

var baseURL = envOr("KEYFENCE_CONTROL_URL", "http://127.0.0.1:8787")

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "list-devices":
		err = listDevices()
	case "detect":
		err = detect()
	case "start":
		err = start()
	case "stop":
		err = stop()
	case "status":
		err = status()
	case "log":
		err = showLog()
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "kbinterposectl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: kbinterposectl <list-devices|detect|start|stop|status|log> [args]")
}

func listDevices() error {
	return getJSON("/devices", os.Stdout)
}

func detect() error {
	minPresses := 3
	if len(os.Args) >= 3 {
		if n, err := strconv.Atoi(os.Args[2]); err == nil {
			minPresses = n
		}
	}
	body, _ := json.Marshal(map[string]int{"min_presses": minPresses})
	return postJSON("/detect", body, os.Stdout)
}

func start() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: start <capture_only|relay> [guest-id] [duration-secs] [min-presses]")
	}
	mode := os.Args[2]
	var guestID string
	var duration int64
	minPresses := 3
	if len(os.Args) >= 4 {
		guestID = os.Args[3]
	}
	if len(os.Args) >= 5 {
		duration, _ = strconv.ParseInt(os.Args[4], 10, 64)
	}
	if len(os.Args) >= 6 {
		if n, err := strconv.Atoi(os.Args[5]); err == nil {
			minPresses = n
		}
	}

	// Identify the target keyboard ourselves rather than submitting the
	// full device enumeration: that would hand every attached keyboard to
	// the session, not just the one the operator means to interpose.
	fmt.Fprintln(os.Stderr, "type on the target keyboard now...")
	sel, err := detectSelection(minPresses)
	if err != nil {
		return err
	}

	body, _ := json.Marshal(map[string]any{
		"devices":       sel.Devices,
		"mode":          mode,
		"guest_id":      guestID,
		"duration_secs": duration,
	})
	return postJSON("/sessions/start", body, os.Stdout)
}

// detectSelection runs detect_identity over the control surface and
// decodes its result into the Selection start needs, rather than the
// raw JSON detect() prints to stdout.
func detectSelection(minPresses int) (identity.Selection, error) {
	body, _ := json.Marshal(map[string]int{"min_presses": minPresses})
	resp, err := http.Post(baseURL+"/detect", "application/json", bytes.NewReader(body))
	if err != nil {
		return identity.Selection{}, err
	}
	defer resp.Body.Close()

	var sel identity.Selection
	if err := json.NewDecoder(resp.Body).Decode(&sel); err != nil {
		return identity.Selection{}, err
	}
	if len(sel.Devices) == 0 {
		return identity.Selection{}, fmt.Errorf("detect: no matching device")
	}
	return sel, nil
}

func stop() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: stop <session-handle>")
	}
	body, _ := json.Marshal(map[string]string{"handle": os.Args[2]})
	return postJSON("/sessions/stop", body, os.Stdout)
}

func status() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: status <session-handle>")
	}
	return getJSON("/sessions/status?handle="+os.Args[2], os.Stdout)
}

func showLog() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: log <session-handle>")
	}
	return getJSON("/sessions/log?handle="+os.Args[2], os.Stdout)
}

func getJSON(path string, w io.Writer) error {
	resp, err := http.Get(baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(w, resp.Body)
	return err
}

func postJSON(path string, body []byte, w io.Writer) error {
	resp, err := http.Post(baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(w, resp.Body)
	return err
}
