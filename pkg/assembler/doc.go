// Package assembler 将样式表、脚本等片段文件按字面占位符内联到主 HTML 文档，
// 生成可直接在浏览器中预览的单文件页面。
//
// 替换是纯字符串替换：不解析 HTML，不转义，只匹配完整的占位符字面量，
// 例如 <?!= include('Stylesheet'); ?>。
package assembler
