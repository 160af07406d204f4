package extract

import (
	"encoding/json"
	"strings"
)

// Script results of ClickScript.
const (
	ClickResultClicked = "clicked"
	ClickResultMissing = "missing"
)

// LocationScript returns the page's current address.
const LocationScript = `() => String(window.location.href)`

// UserAgentScript returns the browser's user agent.
const UserAgentScript = `() => String(navigator.userAgent || "")`

const probeTemplate = `() => {
	const keys = __KEYS__;
	const enc = (v) => encodeURIComponent(v == null ? "" : String(v));
	const get = (() => { __GETTER__ })();
	const nested = (() => { __NESTED__ })();
	const pick = (names) => {
		for (const n of names) {
			try {
				const v = get(n);
				if (v != null && String(v).trim() !== "") return String(v).trim();
			} catch (e) {}
		}
		for (const obj of nested) {
			for (const n of names) {
				const v = obj && obj[n];
				if ((typeof v === "string" || typeof v === "number") && String(v).trim() !== "") return String(v).trim();
			}
		}
		return "";
	};
	const payload = ["` + PayloadTag + `", "__SOURCE__", enc(pick(keys.token)), enc(pick(keys.device)), enc(pick(keys.email))].join("|");
	try { console.log(payload); } catch (e) {}
	return payload;
}`

var getters = map[Source]string{
	SourceCookies: `
		const jar = {};
		for (const part of String(document.cookie || "").split(";")) {
			const i = part.indexOf("=");
			if (i < 0) continue;
			let v = part.slice(i + 1).trim();
			try { v = decodeURIComponent(v); } catch (e) {}
			jar[part.slice(0, i).trim()] = v;
		}
		return (n) => jar[n];`,
	SourceLocalStorage: `
		return (n) => window.localStorage.getItem(n);`,
	SourceSessionStorage: `
		return (n) => window.sessionStorage.getItem(n);`,
	SourceGlobals: `
		return (n) => {
			const v = window[n];
			return (typeof v === "string" || typeof v === "number") ? v : null;
		};`,
}

// Storage values are often JSON blobs such as {"user":{"email":...}}; their
// top-level objects are searched after the direct keys.
const storageNested = `
		const out = [];
		try {
			const st = window.__STORE__;
			for (let i = 0; i < st.length; i++) {
				try {
					const v = JSON.parse(st.getItem(st.key(i)));
					if (v && typeof v === "object") {
						out.push(v);
						for (const k of Object.keys(v)) {
							if (v[k] && typeof v[k] === "object") out.push(v[k]);
						}
					}
				} catch (e) {}
			}
		} catch (e) {}
		return out;`

func nestedFor(src Source) string {
	switch src {
	case SourceLocalStorage:
		return strings.ReplaceAll(storageNested, "__STORE__", "localStorage")
	case SourceSessionStorage:
		return strings.ReplaceAll(storageNested, "__STORE__", "sessionStorage")
	}
	return `return [];`
}

// ProbeScript renders the probe for src. The script evaluates to a payload
// string accepted by ParsePayload.
func ProbeScript(src Source, keys Keys) string {
	k, _ := json.Marshal(keys)
	return strings.NewReplacer(
		"__KEYS__", string(k),
		"__GETTER__", getters[src],
		"__NESTED__", nestedFor(src),
		"__SOURCE__", src.String(),
	).Replace(probeTemplate)
}

const clickTemplate = `() => {
	const label = __LABEL__.toLowerCase();
	const nodes = document.querySelectorAll('a, button, input[type="submit"], input[type="button"], [role="button"], [onclick]');
	for (const el of nodes) {
		const text = String(el.innerText || el.value || el.getAttribute("aria-label") || "").toLowerCase();
		if (!text.includes(label)) continue;
		try { el.scrollIntoView({block: "center"}); } catch (e) {}
		try { el.focus(); } catch (e) {}
		el.click();
		return "` + ClickResultClicked + `";
	}
	return "` + ClickResultMissing + `";
}`

// ClickScript renders a script activating the first clickable element whose
// text contains label, case-insensitively.
func ClickScript(label string) string {
	l, _ := json.Marshal(label)
	return strings.Replace(clickTemplate, "__LABEL__", string(l), 1)
}
