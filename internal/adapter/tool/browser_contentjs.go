package tool

import "fmt"

// maxContentChars bounds the text returned by contentExtractionJS.
const maxContentChars = 50000

// contentExtractionJS returns a script that renders the subtree at target
// (e.g. "document.body") as plain text. Links, buttons and inputs are
// written inline with a CSS selector so the chair can act on them with
// page:click and page:type. The script evaluates to a JSON string shaped
// like PageContent.
func contentExtractionJS(target string) string {
	return fmt.Sprintf(`(function() {
  var MAX = %d;
  var root = %s;
  if (!root) return JSON.stringify({title: document.title, url: location.href, text: "[no element matches the selector]", links: []});

  var out = [], links = [], size = 0, full = false;

  function selectorOf(el) {
    var path = [];
    while (el && el.nodeType === 1) {
      if (el.id) { path.unshift('#' + CSS.escape(el.id)); break; }
      var tag = el.tagName.toLowerCase(), nth = 1, sib = el;
      while ((sib = sib.previousElementSibling)) { if (sib.tagName === el.tagName) nth++; }
      path.unshift(nth > 1 ? tag + ':nth-of-type(' + nth + ')' : tag);
      el = el.parentElement;
    }
    return path.join(' > ');
  }

  function emit(s) {
    if (full) return;
    if (size + s.length > MAX) { out.push('[...truncated]'); full = true; return; }
    out.push(s);
    size += s.length;
  }

  var blocks = /^(div|p|section|article|main|header|footer|nav|ul|ol|li|blockquote|pre|table|tr|dl|dt|dd|figure|form)$/;

  function walk(node) {
    if (full) return;
    if (node.nodeType === 3) {
      var t = node.textContent.trim();
      if (t) emit(t);
      return;
    }
    if (node.nodeType !== 1) return;
    var tag = node.tagName.toLowerCase();
    if (tag === 'script' || tag === 'style' || tag === 'noscript' || tag === 'svg' || tag === 'template') return;
    var st = window.getComputedStyle(node);
    if (st.display === 'none' || st.visibility === 'hidden') return;

    if (/^h[1-6]$/.test(tag)) {
      emit('\n' + '#'.repeat(+tag[1]) + ' ' + node.textContent.trim() + '\n');
      return;
    }
    if (tag === 'a' && node.href) {
      var text = node.textContent.trim();
      var sel = selectorOf(node);
      links.push({text: text, href: node.href, selector: sel});
      emit('[' + text + '](' + node.href + ' "' + sel + '")');
      return;
    }
    if (tag === 'button' || (tag === 'input' && (node.type === 'submit' || node.type === 'button'))) {
      var label = node.textContent.trim() || node.value || node.getAttribute('aria-label') || '';
      emit('[button "' + selectorOf(node) + '"] ' + label);
      return;
    }
    if (tag === 'input' || tag === 'textarea' || tag === 'select') {
      var hint = node.placeholder || node.name || node.getAttribute('aria-label') || '';
      emit('[' + (node.type || tag) + ' input "' + selectorOf(node) + '"' + (hint ? ' ' + hint : '') + ']');
      return;
    }

    var block = blocks.test(tag);
    if (block) emit('\n');
    for (var i = 0; i < node.childNodes.length; i++) walk(node.childNodes[i]);
    if (block) emit('\n');
  }

  walk(root);
  var text = out.join(' ').replace(/[ \t]+/g, ' ').replace(/ ?\n ?/g, '\n').replace(/\n{3,}/g, '\n\n').trim();
  return JSON.stringify({title: document.title, url: location.href, text: text, links: links});
})()`, maxContentChars, target)
}
