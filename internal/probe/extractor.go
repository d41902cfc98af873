package probe

import (
	"fmt"
	"strconv"
)

// extractorBody is the in-page metadata extractor. It scrapes the canonical
// link, the Opengraph URL, and the first JSON-LD identifier, and echoes the
// nonce it was injected with. Malformed JSON-LD blocks are skipped so a
// single bad fragment never fails the whole probe.
const extractorBody = `
(function() {
  var out = {canonical: "", og_url: "", json_ld_id: "", nonce: %s};

  var link = document.querySelector('link[rel="canonical"]');
  if (link && link.href) out.canonical = link.href;

  var og = document.querySelector('meta[property="og:url"]');
  if (og && og.content) out.og_url = og.content;

  var blocks = document.querySelectorAll('script[type="application/ld+json"]');
  for (var i = 0; i < blocks.length && !out.json_ld_id; i++) {
    var nodes;
    try {
      var data = JSON.parse(blocks[i].textContent);
      if (Array.isArray(data)) nodes = data;
      else if (data && Array.isArray(data["@graph"])) nodes = data["@graph"];
      else nodes = [data];
    } catch (_) { continue; }
    for (var j = 0; j < nodes.length; j++) {
      var n = nodes[j];
      if (!n) continue;
      if (typeof n["@id"] === "string" && n["@id"]) { out.json_ld_id = n["@id"]; break; }
      var m = n.mainEntityOfPage;
      var id = typeof m === "string" ? m : (m && typeof m["@id"] === "string" ? m["@id"] : "");
      if (id) { out.json_ld_id = id; break; }
    }
  }

  return out;
})()`

// buildExtractorJS binds a freshly issued nonce into the extractor snippet.
func buildExtractorJS(nonce string) string {
	return fmt.Sprintf(extractorBody, strconv.Quote(nonce))
}
