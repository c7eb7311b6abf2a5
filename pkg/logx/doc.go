// Package logx provides a small structured logging facade over zerolog.
//
// Services hold a logx.Logger by value; the zero value is usable and silent,
// which keeps constructors simple and tests quiet.
package logx
