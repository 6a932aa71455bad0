package config

import "time"

const (
	DefaultConfigPath = "config.ini"

	DefaultLogLevel        = "debug"
	DefaultLogFile         = "logs/vk_archive_loader.log"
	DefaultSmallLimit      = 75
	DefaultBigLimit        = 10
	DefaultVerifySSL       = true
	DefaultSaveByDate      = false
	DefaultProbeTimeout    = 45 * time.Second
	DefaultPageTimeout     = 15 * time.Second
	DefaultDownloadTimeout = 900 * time.Second
	DefaultRetries         = 0
	DefaultRetryBackoff    = 2 * time.Second
	DefaultAcceptLanguage  = "ru"

	DefaultArchiveDir     = "Archive"
	DefaultOutputDir      = "output"
	DefaultMessagesFolder = "messages"
	DefaultLikesFolder    = "likes/photo"
	DefaultPhotosFolder   = "photos"
	DefaultProfileFolder  = "profile"

	sectionMain    = "main_parameters"
	sectionFolders = "folder_parameters"
	sectionSkip    = "skip_rules"
)

// defaultConfigINI is what `init` writes. Values match the defaults above.
const defaultConfigINI = `; vk-archive-loader settings

[main_parameters]
; debug, info, warn or error
log_level = debug
; rotating log file, "-" logs to the console only
log_file = logs/vk_archive_loader.log
; send session cookies with every request
use_cookie = false
; Netscape cookies.txt export
cookies_file =
; or a header value: remixsid=...; remixlang=0
cookies =
; extractor parallelism, 0 uses every CPU
core_count = 0
; concurrent requests for messages and photos
semaphore = 75
; concurrent requests for liked photos and documents
big_semaphore = 10
verify_ssl = true
; add a date directory level under each owner
save_by_date = false
; first response headers, viewer page read, asset download (seconds or 1m30s)
probe_timeout = 45
page_timeout = 15
download_timeout = 900
; extra attempts for timeouts and 5xx answers
retries = 0
retry_backoff = 2s
; 0 disables pacing
requests_per_second = 0
; empty picks a random desktop browser
user_agent =
accept_language = ru
proxy =

[folder_parameters]
vk_archive_folder = Archive
output_folder = output
; leave a folder empty to skip that category
messages_folder = messages
likes_folder = likes/photo
photos_folder = photos
profile_folder = profile

[skip_rules]
; category = substring, substring
`
