package web

// empty stub file: the server is split into
/*

	### **Core Files:**
	1. **`webserver_core_routes.go`** - Server setup, middleware, routes and page data structures
	2. **`web_utils.go`** - Template loading, template helpers, rendering and ETags
	3. **`embedded_static.go`** - Embedded static files and templates
	4. **`web_ratelimit.go`** - Per client IP rate limiting

	### **Page Handler Files:**
	5. **`web_articlePage.go`** - Article lookup and the article page (/article, /articles/:id, /image-post.php)
	6. **`web_staticPages.go`** - About and hire pages

	### **API File:**
	7. **`web_apiHandlers.go`** - JSON endpoints for articles and the popular list

*/
