// Package buildinfo holds version data set with -ldflags "-X".
package buildinfo

var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

func Info() map[string]string {
    return map[string]string{
        "version": Version,
        "commit":  Commit,
        "builtAt": BuiltAt,
    }
}

// String formats the build info on one line.
func String() string {
    s := Version
    if Commit != "" { s += " (" + Commit + ")" }
    if BuiltAt != "" { s += " built " + BuiltAt }
    return s
}
