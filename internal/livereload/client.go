package livereload

import (
	"net/http"
)

// Endpoints mounted by the development server.
const (
	SocketPath = "/__ssrgate/ws"
	ScriptPath = "/__ssrgate/client.js"
)

// URLAttribute is the script tag attribute carrying the rendered request URL.
const URLAttribute = "data-ssrgate-url"

// clientScript reconnects after the server restarts and reloads on
// full_reload messages.
const clientScript = `(() => {
  const script = document.currentScript;
  const pageURL = script ? script.getAttribute("` + URLAttribute + `") : location.pathname + location.search;
  const scheme = location.protocol === "https:" ? "wss:" : "ws:";
  const endpoint = scheme + "//" + location.host + "` + SocketPath + `";
  let retries = 0;

  function connect() {
    const socket = new WebSocket(endpoint);
    socket.addEventListener("open", () => {
      if (retries > 0) {
        location.reload();
      }
      retries = 0;
    });
    socket.addEventListener("message", (event) => {
      let message;
      try {
        message = JSON.parse(event.data);
      } catch (err) {
        return;
      }
      if (message.type === "` + MessageFullReload + `") {
        console.info("[ssrgate] reloading " + pageURL + (message.target ? " (" + message.target + " changed)" : ""));
        location.reload();
      }
    });
    socket.addEventListener("close", () => {
      retries++;
      setTimeout(connect, Math.min(5000, 250 * retries));
    });
  }

  connect();
})();
`

// ServeClientScript serves the browser side of live reload.
func ServeClientScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(clientScript))
}

// ScriptSrc returns the src attribute value for the client script.
func ScriptSrc() string {
	return ScriptPath
}
