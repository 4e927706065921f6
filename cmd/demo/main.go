package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	lsmhttp "lsmview/internal/http"
	"lsmview/pkg/compression"
	"lsmview/pkg/manifest"
)

type envelope struct {
	Status lsmhttp.Status  `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
}

// call sends a request and decodes the data of the response into out.
func call(method, endpoint, contentEncoding string, body []byte, out any) error {
	req, err := http.NewRequest(method, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if contentEncoding != "" {
		req.Header.Set("Content-Encoding", contentEncoding)
	}
	if body != nil && contentEncoding == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%s %s: status=%d body=%s", method, endpoint, resp.StatusCode, raw)
	}
	if env.Status == lsmhttp.StatusError {
		return fmt.Errorf("%s %s: %s", method, endpoint, env.Error)
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

// upload sends a dump to the server; compression and format follow the file
// extension.
func upload(base, path string) (lsmhttp.SessionResponse, error) {
	var sess lsmhttp.SessionResponse

	body, err := os.ReadFile(path)
	if err != nil {
		return sess, err
	}

	codec, inner := compression.FromPath(path)
	encoding := ""
	if codec != compression.None {
		encoding = codec.String()
	}
	format := "json"
	if manifest.FormatFromPath(inner) == manifest.YAML {
		format = "yaml"
	}

	q := url.Values{"name": {filepath.Base(path)}, "format": {format}}
	err = call(http.MethodPost, base+"/api/sessions?"+q.Encode(), encoding, body, &sess)
	return sess, err
}

func printLevels(levels []lsmhttp.LevelResponse) {
	for _, l := range levels {
		if l.Count == 0 {
			continue
		}
		fmt.Printf("    L%d: %3d files %10s\n", l.Level, l.Count, l.SizeHuman)
	}
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: demo http://localhost:8080 [dump.json[.zst]]")
		os.Exit(1)
	}
	base := os.Args[1]

	var sess lsmhttp.SessionResponse
	if len(os.Args) > 2 {
		var err error
		if sess, err = upload(base, os.Args[2]); err != nil {
			log.Fatalf("upload failed: %v", err)
		}
		fmt.Printf("=== uploaded %s as session %s ===\n", sess.Name, sess.ID)
	} else {
		var list []lsmhttp.SessionResponse
		if err := call(http.MethodGet, base+"/api/sessions", "", nil, &list); err != nil {
			log.Fatalf("list sessions failed: %v", err)
		}
		if len(list) == 0 {
			log.Fatal("no sessions on the server, pass a dump to upload")
		}
		sess = list[0]
		fmt.Printf("=== using session %s (%s) ===\n", sess.ID, sess.Name)
	}
	api := base + "/api/sessions/" + sess.ID

	fmt.Printf("\n=== [STEP 1] walking %d edits ===\n", sess.NumEdits)
	var levels lsmhttp.SessionResponse
	for i := 0; i < sess.NumEdits; i++ {
		var moved lsmhttp.SessionResponse
		body := fmt.Appendf(nil, `{"cursor": %d}`, i)
		if err := call(http.MethodPut, api+"/cursor", "", body, &moved); err != nil {
			log.Fatalf("set cursor failed: %v", err)
		}
		fmt.Printf("  #%-4d %s\n", moved.Cursor, moved.Description)
	}
	if err := call(http.MethodGet, api+"/levels", "", nil, &levels); err != nil {
		log.Fatalf("levels failed: %v", err)
	}
	fmt.Println("  final layout:")
	printLevels(levels.Levels)

	fmt.Println("\n=== [STEP 2] overlaps of the first file of every level ===")
	for _, l := range levels.Levels {
		if l.Count == 0 {
			continue
		}
		var o lsmhttp.OverlapsResponse
		q := url.Values{"level": {fmt.Sprint(l.Level)}, "file": {fmt.Sprint(uint64(l.Files[0].ID))}}
		if err := call(http.MethodGet, api+"/overlaps?"+q.Encode(), "", nil, &o); err != nil {
			fmt.Printf("  L%d: %v\n", l.Level, err)
			continue
		}
		fmt.Printf("  %s\n", o.Description)
		for _, run := range o.Runs {
			fmt.Printf("    L%d [%d, %d)\n", run.Level, run.Start, run.End)
		}
	}

	fmt.Println("\n=== [STEP 3] playback from the first edit ===")
	if err := call(http.MethodPut, api+"/cursor", "", []byte(`{"cursor": 0}`), nil); err != nil {
		log.Fatalf("rewind failed: %v", err)
	}
	if err := call(http.MethodPost, api+"/playback", "", []byte(`{"interval": "50ms"}`), nil); err != nil {
		log.Fatalf("playback failed: %v", err)
	}
	for {
		time.Sleep(200 * time.Millisecond)
		var cur lsmhttp.SessionResponse
		if err := call(http.MethodGet, api, "", nil, &cur); err != nil {
			log.Fatalf("poll failed: %v", err)
		}
		fmt.Printf("  cursor=%d playing=%v\n", cur.Cursor, cur.Playing)
		if !cur.Playing {
			break
		}
	}
}
