package main

import (
    "net/http"
)

func serveChatPage(w http.ResponseWriter) {
    w.Header().Set("Content-Type", "text/html; charset=utf-8")
    w.WriteHeader(http.StatusOK)
    w.Write([]byte(chatPage))
}

const chatPage = `<html>
    <head>
        <title> go-chat-hub </title>
        <meta charset="utf-8" name="viewport" />

        <style>
            body {
                padding-left: 10%;
                padding-right: 10%;
                font-size: large;
            }
            div {
                display: flex;
                flex-direction: row;
                align-items: baseline;
                margin-bottom: 0.25em;
            }
            label {
                font-size: large;
            }
            input.text {
                margin-left: 1em;
                height: 2em;
                font-size: large;
            }
            input.button {
                height: 2em;
                font-size: large;
            }
            input.textbox {
                width: 90%;
                margin-right: 0.25em;
                margin-top: 0.25em;
                height: 2em;
                font-size: large;
            }
            div.textbox {
                display: block;
                width: 95%;
                height: 75%;
                margin-top: 0.25em;
                overflow-y: scroll;
                border: solid;
                padding: 1em;
            }
        </style>

        <script>
            let ws = null;
            let token = '';

            let escapeHtml = function(txt) {
                let p = document.createElement('p');
                p.innerText = txt;
                return p.innerHTML;
            }

            let appendMsg = function(msg) {
                let chat = document.getElementById('chat');
                chat.innerHTML += '<p> ' + escapeHtml(msg) + ' </p>';
                chat.scrollTo(0, chat.scrollHeight);
            }

            // Frames are 'KIND|from|to|body|date', with every field but
            // the kind URL encoded.
            let decodeField = function(f) {
                return decodeURIComponent(f.replace(/\+/g, ' '));
            }

            let wsRecv = function(e) {
                let parts = e.data.split('|');
                if (parts.length != 5) {
                    return;
                }

                let kind = parts[0];
                let from = decodeField(parts[1]);
                let to = decodeField(parts[2]);
                let body = decodeField(parts[3]);
                let date = new Date(decodeField(parts[4]));
                let time = date.toLocaleTimeString();

                if (kind == 'USER_LIST') {
                    document.getElementById('users').innerText = body.split(',').join(', ');
                } else if (kind == 'PRIVATE') {
                    appendMsg('[' + time + '] ' + from + ' -> ' + to + ': ' + body);
                } else if (kind == 'ERROR') {
                    appendMsg('[' + time + '] Error: ' + body);
                } else {
                    appendMsg('[' + time + '] ' + from + ': ' + body);
                }
            }

            let wsClose = function(e) {
                appendMsg('Connection to the chat was closed!');
                ws = null;
            }

            let post = function(path, fields, onOk) {
                let body = new URLSearchParams(fields);
                fetch(path, { method: 'POST', body: body })
                    .then(resp => resp.text())
                    .then(txt => {
                        let parts = txt.split('|');
                        if (parts[0] == 'OK') {
                            onOk(parts);
                        } else {
                            appendMsg(parts.slice(1).join('|'));
                        }
                    })
                    .catch(err => appendMsg('Request failed: ' + err));
            }

            let credentials = function() {
                return {
                    username: document.getElementById('username').value,
                    password: document.getElementById('password').value,
                };
            }

            let register = function() {
                post('/register', credentials(), parts => appendMsg(parts[1]));
            }

            let login = function() {
                post('/login', credentials(), parts => {
                    token = parts[1];
                    appendMsg(parts[3]);

                    if (ws != null) {
                        ws.close();
                        ws = null;
                    }

                    let proto = window.location.protocol == 'https:' ? 'wss://' : 'ws://';
                    ws = new WebSocket(proto + window.location.host + '/chat?token=' + token);
                    ws.addEventListener('message', wsRecv);
                    ws.addEventListener('close', wsClose);
                });
            }

            let send = function() {
                let mfield = document.getElementById('message');

                let msg = mfield.value;
                if (msg == '' || ws == null) {
                    return;
                }

                ws.send(msg);
                mfield.value = '';
            }

            let on_boot = function (e) {
                let mfield = document.getElementById('message');
                mfield.addEventListener('keyup', function (e) {
                    if (e.key == 'Enter') {
                        send();
                    }
                });
            }
            document.addEventListener('DOMContentLoaded', on_boot);
        </script>
    </head>

    <body>
        <div>
            <label for='username'> Username: </label>
            <input class='text' type='text' id='username' name='username'>
        </div>
        <div>
            <label for='password'> Password: </label>
            <input class='text' type='password' id='password' name='password'>
        </div>
        <div>
            <input class='button' onclick="register();" type="button" value="Register">
            <input class='button' onclick="login();" type="button" value="Log in">
        </div>

        <div> Online: <span id='users'></span> </div>
        <div class='textbox' id='chat'> </div>

        <div>
            <input class='textbox' type='text' id='message' name='message'>
            <input class='button' onclick="send();" type="button" value="Send">
        </div>
    </body>
</html>`
