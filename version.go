package codecbench

// Version is the current codecbench release.
const Version = "0.3.1"
