// Command artifactcore-cli is a thin RPC client for artifactcored,
// demonstrating chunked upload and whole-artifact download against the
// HTTP binding in pkg/rpcfront. Downloads send no Range header.
package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"

	"golang.org/x/term"
)

const (
	checksumSize    = 32
	frameHeaderSize = 8 + 1 + 1 + checksumSize + 4
)

func main() {
	var (
		server   = flag.String("server", "http://127.0.0.1:8843", "artifactcored base URL")
		upload   = flag.String("upload", "", "local file path to upload")
		download = flag.String("download", "", "local file path to write a download to")
		app      = flag.String("app", "", "artifact app coordinate")
		version  = flag.String("version", "", "artifact version coordinate")
		platform = flag.String("platform", "", "artifact platform coordinate")
		filename = flag.String("filename", "", "artifact filename coordinate")
		chunk    = flag.Int("chunk-size", 256*1024, "upload chunk size in bytes")
	)
	flag.Parse()

	if *app == "" || *version == "" || *platform == "" || *filename == "" {
		fmt.Fprintln(os.Stderr, "error: -app, -version, -platform, -filename are all required")
		flag.Usage()
		os.Exit(1)
	}

	interactive := term.IsTerminal(int(os.Stdout.Fd()))

	var err error
	switch {
	case *upload != "":
		err = runUpload(*server, *upload, *app, *version, *platform, *filename, *chunk, interactive)
	case *download != "":
		err = runDownload(*server, *download, *app, *version, *platform, *filename, interactive)
	default:
		fmt.Fprintln(os.Stderr, "error: one of -upload or -download is required")
		flag.Usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type sessionDescriptor struct {
	SessionID            string `json:"SessionID"`
	RecommendedChunkSize int64  `json:"RecommendedChunkSize"`
	Multipart            bool   `json:"Multipart"`
}

func runUpload(server, path, app, version, platform, filename string, chunkSize int, interactive bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	initBody, _ := json.Marshal(map[string]interface{}{
		"app": app, "version": version, "platform": platform, "filename": filename,
		"declared_size": info.Size(),
	})
	resp, err := http.Post(server+"/v1/uploads", "application/json", bytes.NewReader(initBody))
	if err != nil {
		return fmt.Errorf("initiate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("initiate failed: %s", resp.Status)
	}

	var desc sessionDescriptor
	if err := json.NewDecoder(resp.Body).Decode(&desc); err != nil {
		return err
	}

	digestCh := make(chan string, 1)
	pr, pw := io.Pipe()
	go func() {
		defer pw.Close()
		buf := make([]byte, chunkSize)
		digest := sha256.New()
		var seq uint64
		for {
			n, readErr := f.Read(buf)
			if n > 0 {
				digest.Write(buf[:n])
				seq++
				isFinal := readErr == io.EOF
				chunkSum := sha256.Sum256(buf[:n])
				writeFrame(pw, seq, buf[:n], isFinal, chunkSum[:])
				reportProgress(interactive, seq, n, info.Size())
			}
			if readErr == io.EOF {
				break
			}
			if readErr != nil {
				return
			}
		}
		if interactive {
			fmt.Println()
		}
		digestCh <- hex.EncodeToString(digest.Sum(nil))
	}()

	req, err := http.NewRequest("PUT", server+"/v1/uploads/"+desc.SessionID+"/chunks", pr)
	if err != nil {
		return err
	}
	uploadResp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload chunks: %w", err)
	}
	defer uploadResp.Body.Close()
	if uploadResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(uploadResp.Body)
		return fmt.Errorf("upload chunks failed: %s: %s", uploadResp.Status, string(body))
	}

	commitBody, _ := json.Marshal(map[string]string{"expected_digest": <-digestCh})
	commitResp, err := http.Post(server+"/v1/uploads/"+desc.SessionID+"/commit", "application/json", bytes.NewReader(commitBody))
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	defer commitResp.Body.Close()
	if commitResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(commitResp.Body)
		return fmt.Errorf("commit failed: %s: %s", commitResp.Status, string(body))
	}

	fmt.Printf("uploaded %s/%s/%s/%s (%d bytes)\n", app, version, platform, filename, info.Size())
	return nil
}

// writeFrame emits one upload chunk frame. checksum, when non-nil, must be
// a 32-byte SHA-256 digest of payload; the server verifies it against the
// payload it receives.
func writeFrame(w io.Writer, seq uint64, payload []byte, isFinal bool, checksum []byte) {
	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint64(header[0:8], seq)
	if isFinal {
		header[8] = 1
	}
	if checksum != nil {
		header[9] = 1
		copy(header[10:10+checksumSize], checksum)
	}
	binary.BigEndian.PutUint32(header[10+checksumSize:frameHeaderSize], uint32(len(payload)))
	w.Write(header[:])
	w.Write(payload)
}

func reportProgress(interactive bool, seq uint64, n int, total int64) {
	if interactive {
		fmt.Printf("\ruploading... chunk %d (%d bytes)", seq, n)
		return
	}
	fmt.Printf("chunk %d accepted: %d bytes\n", seq, n)
}

func runDownload(server, path, app, version, platform, filename string, interactive bool) error {
	url := fmt.Sprintf("%s/v1/artifacts/%s/%s/%s/%s", server, app, version, platform, filename)
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("download failed: %s", resp.Status)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		return err
	}

	if interactive {
		fmt.Printf("downloaded %d bytes to %s\n", written, path)
	} else {
		fmt.Printf("download complete: %d bytes\n", written)
	}
	return nil
}
