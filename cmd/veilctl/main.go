// Command veilctl is a command-line client for the veil control API. It
// covers the same operations a popup UI would issue: toggles, mode changes,
// mark listings and edits, import/export, presets, sessions, snapshot export
// and the live change stream.
//
// Usage:
//
//	veilctl [-addr 127.0.0.1:8391] <command> [args]
//
// Commands:
//
//	state                                  show flags and attached tab
//	on | off                               master toggle
//	flag <key> <true|false>                set one flag
//	mode <blur|hide|textReplace>           select the edit kind
//	domains                                list domains with marks
//	marks <domain>                         list a domain's buckets
//	add <domain> <kind> <selector> [name]  store a mark
//	rm <domain> <kind> <selector>          remove a mark
//	rename <domain> <kind> <selector> <name>
//	export                                 write config JSON to stdout
//	import <file>                          merge a config JSON file
//	presets <domain>                       list preset suggestions
//	accept <domain> <selector> [kind]      accept a preset suggestion
//	sessions                               list page sessions
//	activate <id>                          make a session active
//	snapshot                               write redacted page HTML to stdout
//	events [limit]                         recent audit events
//	watch                                  stream change notifications
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8391", "veil API address")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	c := &client{base: "http://" + *addr + "/v1", addr: *addr}
	if err := c.run(args[0], args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "veilctl:", err)
		os.Exit(1)
	}
}

type client struct {
	base string
	addr string
}

func (c *client) run(cmd string, args []string) error {
	switch cmd {
	case "state":
		return c.getJSON("/state")
	case "on":
		return c.putJSON("/flags/extensionActive", map[string]bool{"value": true})
	case "off":
		return c.putJSON("/flags/extensionActive", map[string]bool{"value": false})
	case "flag":
		if len(args) != 2 {
			return fmt.Errorf("usage: flag <key> <true|false>")
		}
		v, err := strconv.ParseBool(args[1])
		if err != nil {
			return fmt.Errorf("bad flag value %q", args[1])
		}
		return c.putJSON("/flags/"+args[0], map[string]bool{"value": v})
	case "mode":
		if len(args) != 1 {
			return fmt.Errorf("usage: mode <blur|hide|textReplace>")
		}
		return c.postJSON("/mode", map[string]any{
			"deleteMode":   args[0] == "hide",
			"editTextMode": args[0] == "textReplace",
		})
	case "domains":
		return c.getJSON("/domains")
	case "marks":
		if len(args) != 1 {
			return fmt.Errorf("usage: marks <domain>")
		}
		return c.getJSON("/domains/" + args[0] + "/marks")
	case "add":
		if len(args) < 3 || len(args) > 4 {
			return fmt.Errorf("usage: add <domain> <kind> <selector> [name]")
		}
		body := map[string]string{"domain": args[0], "kind": args[1], "selector": args[2]}
		if len(args) == 4 {
			body["name"] = args[3]
		}
		return c.postJSON("/marks", body)
	case "rm":
		if len(args) != 3 {
			return fmt.Errorf("usage: rm <domain> <kind> <selector>")
		}
		return c.do(http.MethodDelete,
			"/domains/"+args[0]+"/marks/"+args[1]+"?selector="+url.QueryEscape(args[2]), nil)
	case "rename":
		if len(args) != 4 {
			return fmt.Errorf("usage: rename <domain> <kind> <selector> <name>")
		}
		return c.putJSON("/domains/"+args[0]+"/marks/"+args[1]+"/name",
			map[string]string{"selector": args[2], "name": args[3]})
	case "export":
		return c.getRaw("/export")
	case "import":
		if len(args) != 1 {
			return fmt.Errorf("usage: import <file>")
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		return c.do(http.MethodPost, "/import", data)
	case "presets":
		if len(args) != 1 {
			return fmt.Errorf("usage: presets <domain>")
		}
		return c.getJSON("/presets/" + args[0])
	case "accept":
		if len(args) < 2 || len(args) > 3 {
			return fmt.Errorf("usage: accept <domain> <selector> [kind]")
		}
		sug := map[string]string{"selector": args[1]}
		if len(args) == 3 {
			sug["type"] = args[2]
		}
		return c.postJSON("/presets/"+args[0]+"/accept", sug)
	case "sessions":
		return c.getJSON("/sessions")
	case "activate":
		if len(args) != 1 {
			return fmt.Errorf("usage: activate <id>")
		}
		return c.putJSON("/sessions/active", map[string]string{"id": args[0]})
	case "snapshot":
		return c.getRaw("/snapshot")
	case "events":
		limit := "50"
		if len(args) == 1 {
			limit = args[0]
		}
		return c.getJSON("/events?limit=" + limit)
	case "watch":
		return c.watch()
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (c *client) getJSON(path string) error {
	resp, err := http.Get(c.base + path)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func (c *client) getRaw(path string) error {
	resp, err := http.Get(c.base + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return httpError(resp)
	}
	_, err = io.Copy(os.Stdout, resp.Body)
	return err
}

func (c *client) putJSON(path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.do(http.MethodPut, path, data)
}

func (c *client) postJSON(path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.do(http.MethodPost, path, data)
}

func (c *client) do(method, path string, body []byte) error {
	req, err := http.NewRequest(method, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNoContent {
		resp.Body.Close()
		return nil
	}
	return printJSON(resp)
}

// watch dials the websocket change stream and prints one line per event
// until interrupted.
func (c *client) watch() error {
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+c.addr+"/v1/ws", nil)
	if err != nil {
		return fmt.Errorf("dial change stream: %w", err)
	}
	defer conn.Close()

	interrupted := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		close(interrupted)
		conn.Close()
	}()

	for {
		var ev struct {
			Type   string `json:"type"`
			Domain string `json:"domain"`
		}
		if err := conn.ReadJSON(&ev); err != nil {
			select {
			case <-interrupted:
				return nil
			default:
				return err
			}
		}
		fmt.Printf("%s %s %s\n", time.Now().Format(time.RFC3339), ev.Type, ev.Domain)
	}
}

func printJSON(resp *http.Response) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return httpError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		os.Stdout.Write(data)
		return nil
	}
	buf.WriteByte('\n')
	_, err = buf.WriteTo(os.Stdout)
	return err
}

func httpError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(data))
}

