// Package syntax turns a line of shell input into a CommandList.
//
// The accepted language is the interactive subset of the POSIX shell command
// language described at
// https://pubs.opengroup.org/onlinepubs/9699919799/utilities/V3_chap02.html
//
//  1. The input is broken into tokens: words and operators. Quoting and
//     escapes are resolved here, but the quote kind of every piece of a word
//     is kept so later stages know which parts may still be expanded.
//  2. Tokens are parsed into simple commands, pipelines and and-or lists.
//  3. Expansion, redirection and execution are left to other packages.
//
// Parsing is pure: it never touches the environment or the filesystem.
package syntax
