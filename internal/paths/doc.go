// Provides platform-appropriate default paths for kiln.
//
// All paths follow XDG conventions on Linux and platform-native conventions
// on macOS and Windows. The program name "kiln" is used as the subdirectory
// under each base path. Every default can be overridden from the command line
// or the configuration file; these functions only supply the fallbacks.
package paths
