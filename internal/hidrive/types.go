package hidrive

import (
	"encoding/json"
	"time"
)

// Item types as reported in Item.Type.
const (
	ItemTypeFile = "file"
	ItemTypeDir  = "dir"
)

// Item is a HiDrive file or directory as returned by the file and dir endpoints.
// Which fields are populated depends on the "fields" parameter of the call.
type Item struct {
	ID          string `json:"id"`
	ParentID    string `json:"parent_id"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	MTime       int64  `json:"mtime"` // Unix seconds
	CTime       int64  `json:"ctime"` // Unix seconds
	MIMEType    string `json:"mime_type"`
	ContentHash string `json:"chash"`
	MetaHash    string `json:"mhash"`
	NameHash    string `json:"nhash"`
	Readable    bool   `json:"readable"`
	Writable    bool   `json:"writable"`
	Shareable   bool   `json:"shareable"`
	Teamfolder  bool   `json:"teamfolder"`
	MemberCount int    `json:"nmembers"`
	Members     []Item `json:"members"`
}

// IsDir reports whether the item is a directory.
func (i *Item) IsDir() bool {
	return i.Type == ItemTypeDir
}

// ModTime returns the modification time, or the zero time when not requested.
func (i *Item) ModTime() time.Time {
	if i.MTime == 0 {
		return time.Time{}
	}

	return time.Unix(i.MTime, 0).UTC()
}

// Folder is the user's home folder summary.
type Folder struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Protocols lists the access protocols enabled for an account.
type Protocols struct {
	FTP    bool `json:"ftp"`
	Rsync  bool `json:"rsync"`
	WebDAV bool `json:"webdav"`
	SCP    bool `json:"scp"`
	CIFS   bool `json:"cifs"`
	Git    bool `json:"git"`
}

// User is the account returned by /user/me.
type User struct {
	Account       string    `json:"account"`
	Alias         string    `json:"alias"`
	Description   string    `json:"descr"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	Encrypted     bool      `json:"encrypted"`
	IsAdmin       bool      `json:"is_admin"`
	IsOwner       bool      `json:"is_owner"`
	Language      string    `json:"language"`
	Home          string    `json:"home"`
	HomeID        string    `json:"home_id"`
	Folder        Folder    `json:"folder"`
	Protocols     Protocols `json:"protocols"`
}

// Permissions describes an account's access to one object.
type Permissions struct {
	Account  string `json:"account"`
	ID       string `json:"id"`
	Path     string `json:"path"`
	Readable bool   `json:"readable"`
	Writable bool   `json:"writable"`
}

// FileURL is a temporary public download link.
type FileURL struct {
	URL     string `json:"url"`
	Expires int64  `json:"expires"`
}

// FileHash is the hierarchical content hash of a file. List holds the
// per-range hash lists as returned by the server.
type FileHash struct {
	Level uint            `json:"level"`
	CHash string          `json:"chash"`
	List  json.RawMessage `json:"list"`
}

// searchResult wraps the /search response.
type searchResult struct {
	Result []Item `json:"result"`
}
