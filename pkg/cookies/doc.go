// Package cookies holds the cookie records harvested by the browser pool and
// the Netscape cookie-jar codec consumed by the external downloader.
//
// A jar line has seven tab-separated fields:
//
//	domain  TRUE  path  secure  expiry  name  value
//
// The second field is always TRUE, secure is TRUE or FALSE, and an expiry of
// 0 marks a session cookie. Lines keep the order of the input slice.
package cookies
