package livereload

// Endpoints served by the dev server.
const (
	ScriptPath = "/__devsync/livereload.js"
	SocketPath = "/__devsync/ws"
)

// ScriptTag is injected into served HTML pages.
const ScriptTag = `<script src="` + ScriptPath + `"></script>`

// ClientScript connects to SocketPath, reloads the page on "reload" and
// swaps matching stylesheets on "css". It reconnects with back-off and
// reloads once the server comes back so a restarted devsync is picked up.
const ClientScript = `(function () {
  "use strict";
  var proto = location.protocol === "https:" ? "wss:" : "ws:";
  var url = proto + "//" + location.host + "` + SocketPath + `";
  var delay = 250;
  var seen = false;

  function swapCSS(path) {
    var links = document.querySelectorAll('link[rel="stylesheet"]');
    var swapped = false;
    for (var i = 0; i < links.length; i++) {
      var link = links[i];
      var href = link.getAttribute("href") || "";
      var bare = href.split("?")[0].replace(/^\//, "");
      if (!path || bare === path || bare.endsWith("/" + path)) {
        link.href = href.split("?")[0] + "?t=" + Date.now();
        swapped = true;
      }
    }
    if (!swapped) location.reload();
  }

  function connect() {
    var ws = new WebSocket(url);
    ws.onopen = function () {
      delay = 250;
    };
    ws.onmessage = function (ev) {
      var msg = JSON.parse(ev.data);
      if (msg.type === "hello") {
        if (seen) location.reload();
        seen = true;
      } else if (msg.type === "css") {
        swapCSS(msg.path);
      } else if (msg.type === "reload") {
        location.reload();
      }
    };
    ws.onclose = function () {
      setTimeout(connect, delay);
      delay = Math.min(delay * 2, 5000);
    };
  }

  connect();
})();
`

var bodyClose = []byte("</body>")

// InjectScript inserts ScriptTag before the last closing body tag, or
// appends it when the document has none.
func InjectScript(html []byte) []byte {
	out := make([]byte, 0, len(html)+len(ScriptTag))

	i := lastIndexASCIIFold(html, bodyClose)
	if i < 0 {
		out = append(out, html...)

		return append(out, ScriptTag...)
	}

	out = append(out, html[:i]...)
	out = append(out, ScriptTag...)

	return append(out, html[i:]...)
}

// lastIndexASCIIFold is bytes.LastIndex with A-Z matched case-insensitively.
// Only ASCII letters are folded so offsets stay valid in html.
func lastIndexASCIIFold(html, sep []byte) int {
	for i := len(html) - len(sep); i >= 0; i-- {
		if equalASCIIFold(html[i:i+len(sep)], sep) {
			return i
		}
	}

	return -1
}

func equalASCIIFold(a, lower []byte) bool {
	for j, c := range a {
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}

		if c != lower[j] {
			return false
		}
	}

	return true
}
