// File: internal/driver/scripts.go
package driver

// JavaScript snippets evaluated in the page. Selector-taking snippets are
// rendered with fmt and a %q-quoted selector.

const scriptStopLoading = `window.stop();`

const scriptScrollBy = `window.scrollBy(%d, %d);`

const scriptViewportSize = `({width: window.innerWidth, height: window.innerHeight})`

const scriptElementRect = `(() => {
	const el = document.querySelector(%q);
	if (!el) return null;
	const r = el.getBoundingClientRect();
	return {x: r.x, y: r.y, width: r.width, height: r.height};
})()`

const scriptElementInViewport = `(() => {
	const el = document.querySelector(%q);
	if (!el) return false;
	const r = el.getBoundingClientRect();
	return r.top >= 0 && r.left >= 0 &&
		r.bottom <= window.innerHeight && r.right <= window.innerWidth;
})()`

const scriptCSSStyle = `(() => {
	const el = document.querySelector(%q);
	if (!el) return null;
	const computed = window.getComputedStyle(el);
	const out = {};
	for (const prop of computed) {
		out[prop] = computed.getPropertyValue(prop);
	}
	return out;
})()`

// Picks a uniformly random point inside the part of the element that is
// currently visible in the viewport. Returns null when nothing is visible.
const scriptRandomPointIn = `(() => {
	const el = document.querySelector(%q);
	if (!el) return null;
	const r = el.getBoundingClientRect();
	const left = Math.max(r.left, 0);
	const top = Math.max(r.top, 0);
	const right = Math.min(r.right, window.innerWidth);
	const bottom = Math.min(r.bottom, window.innerHeight);
	if (right <= left || bottom <= top) return null;
	return {
		x: left + Math.random() * (right - left),
		y: top + Math.random() * (bottom - top),
	};
})()`
