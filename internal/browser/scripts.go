package browser

import "fmt"

func existsScript(sel Selector) string {
	return fmt.Sprintf(`(%s) !== null`, sel.NodeJS())
}

func visibleScript(sel Selector) string {
	return fmt.Sprintf(`(() => {
	const el = %s;
	if (!el) return false;
	const style = window.getComputedStyle(el);
	if (style.visibility === 'hidden' || style.display === 'none') return false;
	const rect = el.getBoundingClientRect();
	return rect.width > 0 && rect.height > 0;
})()`, sel.NodeJS())
}

func textScript(sel Selector) string {
	return fmt.Sprintf(`(() => {
	const el = %s;
	return el ? { found: true, text: (el.textContent || '').trim() } : { found: false, text: '' };
})()`, sel.NodeJS())
}

const clearStorageScript = `(() => {
	try { window.localStorage.clear(); } catch (e) {}
	try { window.sessionStorage.clear(); } catch (e) {}
	return true;
})()`
