package curse

// AdjustPageScript hides page elements that cover the download area.
const AdjustPageScript = `(() => {
	const bar = document.querySelector('div#cookiebar');
	if (bar) { bar.style.visibility = 'hidden'; }
	const img = document.querySelector('body img');
	if (img) { img.remove(); }
	const noscripts = document.querySelectorAll('body noscript');
	if (noscripts.length >= 2) { noscripts[1].remove(); }
	document.body.style.overflow = 'hidden';
})()`

// MetadataScript returns the text of the page's __NEXT_DATA__ script, or null.
const MetadataScript = `(() => {
	const el = document.querySelector('script#__NEXT_DATA__');
	return el ? el.textContent : null;
})()`
