// File: internal/browser/script.go
package browser

import (
	"fmt"
	"strings"
)

// ScriptVersion identifies the instrumentation payload generation. It is
// recorded in action metadata so traces are traceable to the script that
// produced them.
const ScriptVersion = "2"

// BindingName is the CDP binding the instrumentation script calls to deliver
// events to the recorder.
const BindingName = "__pagepilot_emit"

// ScriptOptions tunes the generated instrumentation payload.
type ScriptOptions struct {
	// CaptureScroll enables scroll-distance reporting.
	CaptureScroll bool
	// CaptureFocus enables focus-change reporting.
	CaptureFocus bool
	// MaxTextLength truncates captured element text. Zero means 120.
	MaxTextLength int
}

// DefaultScriptOptions returns the options used by the recorder.
func DefaultScriptOptions() ScriptOptions {
	return ScriptOptions{CaptureScroll: true, CaptureFocus: true, MaxTextLength: 120}
}

// InstrumentationScript renders the page-side event capture payload. It is a
// pure string producer: the result is installed on every new document and
// reports through the BindingName binding. Listeners are passive and never
// preventDefault, so recording cannot alter page behavior.
func InstrumentationScript(opts ScriptOptions) string {
	maxText := opts.MaxTextLength
	if maxText <= 0 {
		maxText = 120
	}

	var b strings.Builder
	fmt.Fprintf(&b, `(function() {
  'use strict';
  if (window.__pagepilotInstalled) return;
  window.__pagepilotInstalled = true;
  var VERSION = %q;
  var MAX_TEXT = %d;

  function emit(payload) {
    try { window.%s(JSON.stringify(payload)); } catch (e) { /* binding gone */ }
  }

  function trimText(s) {
    if (!s) return '';
    s = s.replace(/\s+/g, ' ').trim();
    return s.length > MAX_TEXT ? s.slice(0, MAX_TEXT) : s;
  }

  function cssPath(el) {
    if (el.id) return '#' + CSS.escape(el.id);
    var path = [];
    var node = el;
    while (node && node.nodeType === 1 && path.length < 6) {
      var part = node.nodeName.toLowerCase();
      var parent = node.parentElement;
      if (parent) {
        var siblings = Array.prototype.filter.call(parent.children, function(c) {
          return c.nodeName === node.nodeName;
        });
        if (siblings.length > 1) {
          part += ':nth-of-type(' + (siblings.indexOf(node) + 1) + ')';
        }
      }
      path.unshift(part);
      if (node.id) { path[0] = '#' + CSS.escape(node.id); break; }
      node = parent;
    }
    return path.join(' > ');
  }

  function accessibleName(el) {
    return el.getAttribute('aria-label') ||
      (el.labels && el.labels[0] ? trimText(el.labels[0].textContent) : '') ||
      el.getAttribute('name') || '';
  }

  function selectorCandidates(el) {
    var out = [];
    if (el.id) {
      out.push({strategy: 'id', selector: '#' + CSS.escape(el.id), score: 95, description: 'element id'});
    }
    var testid = el.getAttribute('data-testid');
    if (testid) {
      out.push({strategy: 'data-testid', selector: '[data-testid="' + testid + '"]', score: 90, description: 'test id'});
    }
    var aria = el.getAttribute('aria-label');
    if (aria) {
      out.push({strategy: 'aria-label', selector: el.nodeName.toLowerCase() + '[aria-label="' + aria + '"]', score: 85, description: 'aria label'});
    }
    var role = el.getAttribute('role');
    var name = el.getAttribute('name');
    if (role && name) {
      out.push({strategy: 'role-name', selector: '[role="' + role + '"][name="' + name + '"]', score: 80, description: 'role and name'});
    } else if (name) {
      out.push({strategy: 'role-name', selector: el.nodeName.toLowerCase() + '[name="' + name + '"]', score: 78, description: 'name attribute'});
    }
    var text = trimText(el.textContent);
    if (text && text.length <= 50) {
      out.push({strategy: 'text-contains', selector: text, score: 70, description: 'visible text'});
    }
    out.push({strategy: 'css', selector: cssPath(el), score: 60, description: 'structural css path'});
    return out;
  }

  function describeTarget(el) {
    if (!el || el.nodeType !== 1) return null;
    var rect = el.getBoundingClientRect();
    var style = window.getComputedStyle(el);
    return {
      tagName: el.nodeName.toLowerCase(),
      id: el.id || '',
      className: (typeof el.className === 'string') ? el.className : '',
      name: el.getAttribute('name') || '',
      type: el.getAttribute('type') || '',
      role: el.getAttribute('role') || '',
      ariaLabel: accessibleName(el),
      text: trimText(el.textContent),
      href: el.href || '',
      box: {x: rect.x, y: rect.y, width: rect.width, height: rect.height},
      isVisible: rect.width > 0 && rect.height > 0 && style.display !== 'none' && style.visibility !== 'hidden',
      isInteractive: true,
      selectors: selectorCandidates(el)
    };
  }

  function baseMeta() {
    return {
      pageUrl: location.href,
      pageTitle: document.title,
      trigger: 'user',
      scriptVersion: VERSION
    };
  }

  function sendAction(type, target, value, meta) {
    emit({
      kind: 'action',
      action: {
        type: type,
        timestamp: 0,
        target: target,
        value: value,
        metadata: meta || baseMeta()
      }
    });
  }

  document.addEventListener('click', function(ev) {
    var el = ev.target.closest('a, button, input, select, textarea, [role="button"], [onclick], label, summary') || ev.target;
    if (el.nodeName === 'INPUT' && (el.type === 'checkbox' || el.type === 'radio')) return; // change handles these
    sendAction('click', describeTarget(el), {kind: ''});
  }, {capture: true, passive: true});

  document.addEventListener('input', function(ev) {
    var el = ev.target;
    if (!el || (el.nodeName !== 'INPUT' && el.nodeName !== 'TEXTAREA')) return;
    var masked = el.type === 'password' ? '*'.repeat((el.value || '').length) : el.value;
    sendAction('input', describeTarget(el), {kind: 'text', text: masked});
  }, {capture: true, passive: true});

  document.addEventListener('change', function(ev) {
    var el = ev.target;
    if (!el) return;
    if (el.nodeName === 'SELECT') {
      sendAction('select', describeTarget(el), {kind: 'option', option: el.value});
    } else if (el.nodeName === 'INPUT' && el.type === 'checkbox') {
      sendAction('checkbox', describeTarget(el), {kind: 'checked', checked: el.checked});
    } else if (el.nodeName === 'INPUT' && el.type === 'radio') {
      sendAction('radio', describeTarget(el), {kind: 'checked', checked: el.checked});
    } else if (el.nodeName === 'INPUT' && el.type === 'file') {
      var names = Array.prototype.map.call(el.files || [], function(f) { return f.name; });
      sendAction('file-upload', describeTarget(el), {kind: 'files', files: names});
    }
  }, {capture: true, passive: true});

  document.addEventListener('submit', function(ev) {
    sendAction('submit', describeTarget(ev.target), {kind: ''});
  }, {capture: true, passive: true});

  document.addEventListener('keydown', function(ev) {
    if (ev.key.length === 1 && !ev.ctrlKey && !ev.metaKey && !ev.altKey) return; // plain typing is covered by input
    var mods = [];
    if (ev.ctrlKey) mods.push('Ctrl');
    if (ev.altKey) mods.push('Alt');
    if (ev.shiftKey) mods.push('Shift');
    if (ev.metaKey) mods.push('Meta');
    var meta = baseMeta();
    if (mods.length > 0) meta.shortcut = mods.concat([ev.key]).join('+');
    sendAction('keypress', null, {kind: 'key', key: ev.key, modifiers: mods}, meta);
  }, {capture: true, passive: true});
`, ScriptVersion, maxText, BindingName)

	if opts.CaptureFocus {
		b.WriteString(`
  document.addEventListener('focusin', function(ev) {
    if (!ev.target || !ev.target.nodeName) return;
    emit({kind: 'focus', focusTag: ev.target.nodeName.toLowerCase()});
  }, {capture: true, passive: true});
`)
	}

	if opts.CaptureScroll {
		b.WriteString(`
  var lastScrollY = window.scrollY;
  var lastScrollX = window.scrollX;
  var scrollTimer = null;
  window.addEventListener('scroll', function() {
    if (scrollTimer) return;
    scrollTimer = setTimeout(function() {
      scrollTimer = null;
      var dy = Math.abs(window.scrollY - lastScrollY);
      var dx = Math.abs(window.scrollX - lastScrollX);
      lastScrollY = window.scrollY;
      lastScrollX = window.scrollX;
      if (dx + dy > 0) emit({kind: 'scroll', scrollDistance: dx + dy});
    }, 150);
  }, {capture: true, passive: true});
`)
	}

	b.WriteString("})();\n")
	return b.String()
}
